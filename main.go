package main

import "github.com/rafaguilar/DynBanner-RenderGrid/cmd"

func main() {
	cmd.Execute()
}
