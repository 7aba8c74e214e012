package main

import "github.com/brensch/annualreview/cmd"

func main() {
	cmd.Execute()
}
