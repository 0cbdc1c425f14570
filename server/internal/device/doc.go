// Package device implements the rail yard accessories: relay and servo track
// switches, motors, uncouplers, track disconnects and light beams.
//
// Every device has two named states (an on state and an off state) plus the
// uncontrolled state, written as the empty State and serialised as JSON null.
// Stateful devices remember their state and skip repeated actions; stateless
// devices (motors) act every time they are asked to and never hold a state.
//
// Devices are built from a Spec looked up by type name in the catalogue:
//
//	spec, params, err := device.Lookup("RelayTrainSwitch")
//	d, err := spec.New(env, []int{0, 1}, params)
//	err = d.Action(d.OnState())
//
// Hardware comes from env.Backend; blocking waits go through env.Sleep so
// tests can run without real delays.
package device
