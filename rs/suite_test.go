package rs_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRS(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "rs suite")
}
