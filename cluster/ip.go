package cluster

import "fmt"

// ipAllocator deterministically hands out addresses in the 10.0.x.y block
// as nodes join (spec §4.4): y runs 1..254 before x increments; x starts at
// 0 and wraps back to 1 after 254.
type ipAllocator struct {
	x, y int
}

func newIPAllocator() *ipAllocator { return &ipAllocator{x: 0, y: 0} }

func (a *ipAllocator) Next() string {
	a.y++
	if a.y > 254 {
		a.y = 1
		a.x++
	}
	if a.x > 254 {
		a.x = 1 // wrap: the 10.0.0.0/16 block is far beyond any realistic sim size
	}
	return fmt.Sprintf("10.0.%d.%d", a.x, a.y)
}
