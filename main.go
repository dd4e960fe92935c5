package main

import "pdf2zh-server/internal/cmd"

func main() {
	cmd.Execute()
}
