package main

import "recipechat/internal/cli"

func main() {
	cli.Execute()
}
