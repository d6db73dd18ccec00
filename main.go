/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/magadiflo/usersvc/cmd"

func main() {
	cmd.Execute()
}
