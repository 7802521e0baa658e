package main

import (
	_ "github.com/cloudwego/eino/components/embedding"
)

func main() {}
