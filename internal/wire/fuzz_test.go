package wire

import (
	"bytes"
	"testing"
)

func FuzzDecodeEnvelope(f *testing.F) {
	frame, _ := EncodeEnvelope(DefaultMagic, CmdVerack, nil)
	f.Add(frame)
	f.Add([]byte{0xe9, 0xbe, 0xb4, 0xd9, 'i', 'n', 'v'})
	f.Fuzz(func(t *testing.T, data []byte) {
		env, err := DecodeEnvelope(bytes.NewReader(data), DefaultMagic, 1<<16)
		if err != nil {
			return
		}
		if Checksum(env.Payload) != env.Checksum {
			t.Fatalf("accepted envelope with bad checksum")
		}
	})
}

func FuzzParsePayload(f *testing.F) {
	reg := NewRegistry(DefaultLimits())
	inv, _ := Serialize(&Inv{Vectors: []InventoryVector{{1}}})
	f.Add(CmdInv, inv)
	f.Add(CmdAddr, []byte{0x01})
	f.Add(CmdVersion, []byte{0, 0, 0, 3})
	f.Fuzz(func(t *testing.T, cmd string, data []byte) {
		p, err := reg.Parse(cmd, data)
		if err != nil {
			return
		}
		if _, err := Serialize(p); err != nil {
			t.Fatalf("serialize of parsed %s failed: %v", cmd, err)
		}
	})
}
