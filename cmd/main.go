package main

import "invoicedesk/internal/cli"

func main() {
	cli.Execute()
}
