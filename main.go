package main

import (
	"fmt"

	_ "github.com/travelblogr/go-common/cache"
	_ "github.com/travelblogr/go-common/config"
	_ "github.com/travelblogr/go-common/logger"
	_ "github.com/travelblogr/go-common/ratelimit"
	_ "github.com/travelblogr/go-common/store"
)

func main() {
	fmt.Println("Hi")
}
