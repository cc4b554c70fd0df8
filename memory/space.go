package memory

// Space routes accesses to the mapped regions. Lookup is a linear scan; the
// Neptune map has a handful of regions.
type Space struct {
	regions []Region
}

// NewSpace creates an empty address space
func NewSpace() *Space {
	return &Space{}
}

// Map adds a region. Overlapping mappings are rejected.
func (s *Space) Map(r Region) error {
	w := r.Window()
	if w.Size == 0 {
		return ErrEmptySize
	}
	for _, m := range s.regions {
		if m.Window().overlaps(w) {
			return ErrOverlap
		}
	}
	s.regions = append(s.regions, r)
	return nil
}

// MustMap is Map for static board setup
func (s *Space) MustMap(r Region) {
	if err := s.Map(r); err != nil {
		panic(err.Error() + " " + r.Window().String())
	}
}

// Lookup returns the region containing addr.
func (s *Space) Lookup(addr uint32) (Region, bool) {
	for _, r := range s.regions {
		if r.Window().Contains(addr) {
			return r, true
		}
	}
	return nil, false
}

// Regions returns the mapped regions in mapping order.
func (s *Space) Regions() []Region {
	return s.regions
}

func (s *Space) Read8(addr uint32) (byte, error) {
	r, ok := s.Lookup(addr)
	if !ok {
		return 0, &FaultError{Addr: addr}
	}
	return r.Read8(addr), nil
}

func (s *Space) Write8(addr uint32, v byte) error {
	r, ok := s.Lookup(addr)
	if !ok {
		return &FaultError{Addr: addr, Write: true}
	}
	r.Write8(addr, v)
	return nil
}

func (s *Space) Read16(addr uint32) (uint16, error) {
	r, ok := s.Lookup(addr)
	if !ok || !r.Window().ContainsRange(addr, 2) {
		return 0, &FaultError{Addr: addr}
	}
	return r.Read16(addr), nil
}

func (s *Space) Write16(addr uint32, v uint16) error {
	r, ok := s.Lookup(addr)
	if !ok || !r.Window().ContainsRange(addr, 2) {
		return &FaultError{Addr: addr, Write: true}
	}
	r.Write16(addr, v)
	return nil
}

// Read fills p from consecutive addresses starting at addr. On a fault the
// bytes before the faulting address have already been copied.
func (s *Space) Read(addr uint32, p []byte) error {
	for i := range p {
		b, err := s.Read8(addr + uint32(i))
		if err != nil {
			return err
		}
		p[i] = b
	}
	return nil
}

// Write stores p at consecutive addresses starting at addr.
func (s *Space) Write(addr uint32, p []byte) error {
	for i, b := range p {
		if err := s.Write8(addr+uint32(i), b); err != nil {
			return err
		}
	}
	return nil
}
