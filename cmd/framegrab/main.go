// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"log"

	"framegrab"
)

func main() {
	if err := framegrab.Run(); err != nil {
		log.Fatal(err)
	}
}
