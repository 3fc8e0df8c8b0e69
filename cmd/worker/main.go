package main

import "tbot/internal/server"

func main() {
	server.WorkerInit()
}
