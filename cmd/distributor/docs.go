package main

//go:generate swag init -g cmd/distributor/main.go -o docs

// @title           Signal Distributor API
// @version         0.1.0
// @description     Tiered ranking and timed distribution of trade signal candidates.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
