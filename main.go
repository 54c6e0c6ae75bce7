/*
	Copyright 2023 Markus Papenbrock
*/

package main

import "github.com/mpapenbr/openf1-insights/cmd"

func main() {
	cmd.Execute()
}
