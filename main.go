package main

import "github.com/doananhhung/livechat-sub002/cmd"

func main() {
	cmd.Execute()
}
