// Code generated by hand for a test. DO NOT EDIT.

package a

import gc "github.com/chazu/rooted/gc"

type generated struct {
	win gc.Ref[*Window]
}
