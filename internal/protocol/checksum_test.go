package protocol

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksum(t *testing.T) {
	assert.Equal(t, byte(0x00), Checksum(nil))
	assert.Equal(t, byte(0x01), Checksum([]byte{0xff, 0x02}))
	assert.Equal(t, byte(0xd9), Checksum([]byte{0x42, 0x01, 0x32, 0x64}))

	body := []byte{0x10, 0x20, 0xf0}
	assert.Equal(t, Checksum(body), Checksum(body))
}

func TestTemplatesAreSelfConsistent(t *testing.T) {
	templates := map[string][]byte{
		"color":                colorTemplate[:],
		"sound":                soundTemplate[:],
		"effect":               effectTemplate[:],
		"led settings":         ledSettingsTemplate[:],
		"power":                powerTemplate[:],
		"time sync":            timeSyncTemplate[:],
		"legacy status":        legacyStatusQuery[:],
		"legacy led settings":  legacyLEDSettingsQuery[:],
		"extended status":      extStatusQuery[:],
		"extended led query":   extLEDSettingsQuery[:],
		"extended device info": extDeviceSettingsQuery[:],
	}

	for name, p := range templates {
		t.Run(name, func(t *testing.T) {
			assert.True(t, VerifyChecksum(p), fmt.Sprintf("% x", p))
			assert.Equal(t, byte(0x80), p[2])
			assert.Equal(t, byte(len(p)-headerLen), p[5], "body length")
			assert.Equal(t, p[5]+1, p[6])
		})
	}
}

func TestSealPacket(t *testing.T) {
	p := []byte{0, 0, 0x80, 0, 0, 3, 4, 0x0b, 0x01, 0x02, 0x00}
	sealPacket(p)
	assert.Equal(t, byte(0x03), p[len(p)-1])
	assert.True(t, VerifyChecksum(p))

	p[8] = 0x05
	assert.False(t, VerifyChecksum(p))
	assert.False(t, VerifyChecksum([]byte{1, 2, 3}))
}
