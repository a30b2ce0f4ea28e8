package pwm

// RPIOPins are the Raspberry Pi pins with hardware PWM. 12/18 share channel 0 and 13/19
// share channel 1.
var RPIOPins = map[int]bool{
	12: true,
	13: true,
	18: true,
	19: true,
}
