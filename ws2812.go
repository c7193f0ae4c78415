package main

// WS2812 bitstream over SPI. The pixel has no real SPI interface; it reads a
// self-clocked signal where every data bit is a fixed-width pulse. Clocking
// the bus at 2.4 MHz makes one WS2812 bit exactly three SPI bits:
//
//	0 -> 100 (~0.42us high)
//	1 -> 110 (~0.83us high)
//
// which lands inside the datasheet's timing tolerances. A run of low bytes
// at the end acts as the >50us reset latch.

import (
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// ws2812Baud is the SPI clock the frame encoding below assumes.
const ws2812Baud = 2400 * physic.KiloHertz

// ws2812ResetBytes is the latch gap: 15 bytes * 8 bits / 2.4MHz = 50us.
const ws2812ResetBytes = 15

// ws2812Expand encodes one data byte into its three-byte SPI representation,
// most significant bit first.
func ws2812Expand(b byte) [3]byte {
	var out uint32
	for i := 7; i >= 0; i-- {
		out <<= 3
		if b&(1<<i) != 0 {
			out |= 0b110
		} else {
			out |= 0b100
		}
	}
	return [3]byte{byte(out >> 16), byte(out >> 8), byte(out)}
}

// ws2812Frame builds the full SPI transmission for a pixel chain. WS2812
// wants bytes in GRB order.
func ws2812Frame(colors []Color) []byte {
	buf := make([]byte, 0, len(colors)*9+ws2812ResetBytes)
	for _, c := range colors {
		for _, b := range [3]byte{c.G, c.R, c.B} {
			e := ws2812Expand(b)
			buf = append(buf, e[0], e[1], e[2])
		}
	}
	for i := 0; i < ws2812ResetBytes; i++ {
		buf = append(buf, 0)
	}
	return buf
}

// ws2812LED drives a single status pixel through an SPI connection.
type ws2812LED struct {
	port spi.PortCloser
	conn spi.Conn
}

func (l *ws2812LED) Write(c Color) error {
	return l.conn.Tx(ws2812Frame([]Color{c}), nil)
}

func (l *ws2812LED) Close() error {
	return l.port.Close()
}
