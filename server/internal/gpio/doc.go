// Package gpio is the hardware seam of railyard-server.
//
// Devices never talk to a GPIO driver directly; they receive Pin and Strip
// values from a Backend:
//
//   - NewPeriph() drives the header of a Linux board through periph.io.
//     Pins are resolved by their "GPIO<n>" name after host.Init().
//   - NewSim() keeps every level, duty cycle and pixel in memory. It is the
//     backend used by tests and by `hardware.backend: sim`.
//
// Levels and duty cycles use the periph.io conn types (gpio.Level, gpio.Duty,
// physic.Frequency) on both backends so device code is backend-agnostic.
package gpio
