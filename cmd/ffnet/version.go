package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

func runVersion(_ []string) error {
	fmt.Printf("ffnet %s (%s)\n", version, runtime.Version())
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if dep.Path == "github.com/born-ml/born" {
				fmt.Printf("born %s\n", dep.Version)
			}
		}
	}
	return nil
}
