// ./main.go
package main

import (
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/cmd"
)

// main is the entry point for the warehouse coordinator.
func main() {
	cmd.Execute()
}
