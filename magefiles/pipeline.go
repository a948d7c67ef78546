//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Ingest indexes the files under sources/ into the knowledge base.
func Ingest() error {
	mg.Deps(Build)
	return sh.RunV("bin/"+binName, "ingest", "--dir", "sources")
}

// Query generates an outline for topic with run statistics.
func Query(topic string) error {
	mg.Deps(Build)
	return sh.RunV("bin/"+binName, "query", topic, "--stats")
}
