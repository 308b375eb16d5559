package main

import (
	"fmt"

	_ "go.uber.org/automaxprocs"

	"github.com/webitel/im-messaging-service/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
