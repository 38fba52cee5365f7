package scheduler_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nexusai-enterprises/cloudsim/scheduler"
)

var _ = Describe("Scheduler", func() {
	It("dispatches events in (time, priority, sequence) order", func() {
		s := scheduler.New()
		var order []string

		s.ScheduleAt(2, 0, func(float64) { order = append(order, "t2") })
		s.ScheduleAt(1, 5, func(float64) { order = append(order, "t1-lowpri") })
		s.ScheduleAt(1, 1, func(float64) { order = append(order, "t1-hipri") })
		s.ScheduleAt(1, 1, func(float64) { order = append(order, "t1-hipri-second") })

		s.Run(nil, 0)

		Expect(order).To(Equal([]string{"t1-hipri", "t1-hipri-second", "t1-lowpri", "t2"}))
	})

	It("never schedules into the past", func() {
		s := scheduler.New()
		s.ScheduleAt(5, 0, func(float64) {})
		s.Run(nil, 1)
		Expect(s.Now()).To(Equal(5.0))

		h := s.ScheduleAt(1, 0, func(float64) {})
		Expect(h).To(BeNil())
	})

	It("skips cancelled events", func() {
		s := scheduler.New()
		fired := false
		h := s.ScheduleAt(1, 0, func(float64) { fired = true })
		s.Cancel(h)
		s.Run(nil, 0)
		Expect(fired).To(BeFalse())
	})

	It("allows callbacks to schedule follow-up events at now, FIFO within the tick", func() {
		s := scheduler.New()
		var order []int
		s.ScheduleAt(1, 0, func(now float64) {
			order = append(order, 1)
			s.ScheduleAt(now, 0, func(float64) { order = append(order, 2) })
			s.ScheduleAt(now, 0, func(float64) { order = append(order, 3) })
		})
		s.Run(nil, 0)
		Expect(order).To(Equal([]int{1, 2, 3}))
	})

	It("stops at the `until` boundary without dropping remaining events", func() {
		s := scheduler.New()
		count := 0
		s.ScheduleAt(1, 0, func(float64) { count++ })
		s.ScheduleAt(10, 0, func(float64) { count++ })
		until := 5.0
		dispatched := s.Run(&until, 0)
		Expect(dispatched).To(Equal(1))
		Expect(count).To(Equal(1))
		Expect(s.Now()).To(Equal(5.0))

		s.Run(nil, 0)
		Expect(count).To(Equal(2))
	})

	It("produces bit-identical dispatch order across two runs with the same schedule", func() {
		build := func() []string {
			s := scheduler.New()
			var order []string
			for i := 0; i < 50; i++ {
				i := i
				s.ScheduleAt(float64(i%7), i%3, func(float64) {
					order = append(order, string(rune('a'+i%26)))
				})
			}
			s.Run(nil, 0)
			return order
		}
		Expect(build()).To(Equal(build()))
	})
})
