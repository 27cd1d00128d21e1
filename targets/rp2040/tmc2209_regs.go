//go:build rp2040

package main

// TMC2209 register map and field layout. Addresses are 7 bits; the write
// datagram sets bit 7 of the address byte.
const (
	regGCONF      = 0x00
	regGSTAT      = 0x01
	regIFCNT      = 0x02
	regSLAVECONF  = 0x03
	regIOIN       = 0x06
	regIHOLDIRUN  = 0x10
	regTPOWERDOWN = 0x11
	regTCOOLTHRS  = 0x14
	regVACTUAL    = 0x22
	regSGTHRS     = 0x40
	regSGRESULT   = 0x41
	regCHOPCONF   = 0x6C
	regDRVSTATUS  = 0x6F
	regPWMCONF    = 0x70
)

// GCONF fields.
const (
	gconfIScaleAnalog   = 1 << 0
	gconfEnSpreadCycle  = 1 << 2
	gconfShaft          = 1 << 3
	gconfPdnDisable     = 1 << 6
	gconfMstepRegSelect = 1 << 7
	gconfMultistepFilt  = 1 << 8
)

// SLAVECONF: SENDDELAY lives in bits 8-11.
const slaveconfSendDelayShift = 8

// IOIN: ENN reflects the hardware enable line, high means disabled.
const ioinEnn = 1 << 0

// IHOLD_IRUN fields. Current settings are 5-bit (0-31).
const (
	iholdShift      = 0
	irunShift       = 8
	iholdDelayShift = 16
	currentMax      = 31
)

// VACTUAL is a signed 24-bit velocity in internal clock units.
const vactualMask = 0xFFFFFF

// CHOPCONF fields.
const (
	chopconfToffMask  = 0x0F
	chopconfMresShift = 24
	chopconfMresMask  = 0x0F << chopconfMresShift
	chopconfIntpol    = 1 << 28
)

// DRV_STATUS fields.
const drvStatusStst = 1 << 31

// PWMCONF fields.
const (
	pwmconfOfsShift       = 0
	pwmconfGradShift      = 8
	pwmconfAutoscale      = 1 << 18
	pwmconfAutograd       = 1 << 19
	pwmconfFreewheelShift = 20
	pwmconfFreewheelMask  = 0x03 << pwmconfFreewheelShift
)

// SG_RESULT is 10 bits.
const sgResultMask = 0x3FF
