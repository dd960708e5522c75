//go:build rp2040

package main

import "machine"

// spiBusConfig names an SPI controller and the GPIOs routed to it.
type spiBusConfig struct {
	spi  *machine.SPI
	sck  machine.Pin
	mosi machine.Pin
	miso machine.Pin
	name string
}

// Buses the CAN controller can be wired to on the Recoil boards.
var rp2040SPIBuses = map[string]spiBusConfig{
	"spi0c": {spi: machine.SPI0, sck: machine.GPIO18, mosi: machine.GPIO19, miso: machine.GPIO16, name: "spi0c"},
	"spi1a": {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO8, name: "spi1a"},
	"spi1b": {spi: machine.SPI1, sck: machine.GPIO14, mosi: machine.GPIO15, miso: machine.GPIO12, name: "spi1b"},
}

// configure sets the bus up in mode 0, which is what the MCP2515 speaks.
func (b spiBusConfig) configure(rate uint32) (*machine.SPI, error) {
	err := b.spi.Configure(machine.SPIConfig{
		Frequency: rate,
		SCK:       b.sck,
		SDO:       b.mosi,
		SDI:       b.miso,
		Mode:      0,
	})
	if err != nil {
		return nil, err
	}
	return b.spi, nil
}
