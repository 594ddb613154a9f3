/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package main

import "github.com/the-moog/serbert/cmd"

func main() {
	cmd.Execute()
}
