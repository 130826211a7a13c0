package wire

// Addr announces known nodes.
type Addr struct {
	Addresses []NetworkAddress
}

func (a *Addr) Command() string { return CmdAddr }

func (a *Addr) AppendWire(dst []byte) ([]byte, error) {
	dst = AppendVarInt(dst, uint64(len(a.Addresses)))
	for _, na := range a.Addresses {
		dst = AppendNetworkAddress(dst, na)
	}
	return dst, nil
}

func parseAddr(b []byte, lim Limits) (Payload, error) {
	r := newReader(b)
	n := r.count("addr", lim.MaxAddrLength, minNetworkAddressSize)
	a := &Addr{Addresses: make([]NetworkAddress, 0, n)}
	for i := 0; i < n && r.err == nil; i++ {
		a.Addresses = append(a.Addresses, readNetworkAddress(r))
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return a, nil
}

// Inv announces objects by inventory vector.
type Inv struct {
	Vectors []InventoryVector
}

func (v *Inv) Command() string { return CmdInv }

func (v *Inv) AppendWire(dst []byte) ([]byte, error) {
	return appendVectors(dst, v.Vectors), nil
}

func parseInv(b []byte, lim Limits) (Payload, error) {
	vs, err := parseVectors(b, lim.MaxInventoryLength)
	if err != nil {
		return nil, err
	}
	return &Inv{Vectors: vs}, nil
}

// GetData requests objects by inventory vector.
type GetData struct {
	Vectors []InventoryVector
}

func (g *GetData) Command() string { return CmdGetData }

func (g *GetData) AppendWire(dst []byte) ([]byte, error) {
	return appendVectors(dst, g.Vectors), nil
}

func parseGetData(b []byte, lim Limits) (Payload, error) {
	vs, err := parseVectors(b, lim.MaxInventoryLength)
	if err != nil {
		return nil, err
	}
	return &GetData{Vectors: vs}, nil
}

func appendVectors(dst []byte, vs []InventoryVector) []byte {
	dst = AppendVarInt(dst, uint64(len(vs)))
	for _, v := range vs {
		dst = append(dst, v[:]...)
	}
	return dst
}

func parseVectors(b []byte, max int) ([]InventoryVector, error) {
	r := newReader(b)
	n := r.count("inventory", max, InventoryVectorSize)
	vs := make([]InventoryVector, n)
	for i := range vs {
		copy(vs[i][:], r.take(InventoryVectorSize, "inventory vector"))
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return vs, nil
}
