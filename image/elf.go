package image

import (
	"debug/elf"
	"sort"
)

type chunk struct {
	PAddr uint64
	Data  []byte
}

type byPAddr []*chunk

func (p byPAddr) Len() int           { return len(p) }
func (p byPAddr) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p byPAddr) Less(i, j int) bool { return p[i].PAddr < p[j].PAddr }

func inProg(vaddr, size uint64, prog *elf.Prog) bool {
	return (vaddr >= prog.Vaddr) && (vaddr+size <= (prog.Vaddr + prog.Memsz))
}

// LoadELF collects the sections of every loadable segment at their load
// addresses, so initialised data lands after the code in flash
func LoadELF(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	chunks := []*chunk{}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Filesz == 0 {
			continue
		}

		for _, sec := range f.Sections {
			if sec.Type == elf.SHT_NOBITS || sec.Flags&elf.SHF_ALLOC == 0 || sec.Size == 0 {
				continue
			}
			if !inProg(sec.Addr, sec.Size, prog) {
				continue
			}
			data, err := sec.Data()
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, &chunk{
				PAddr: prog.Paddr + (sec.Addr - prog.Vaddr),
				Data:  data,
			})
		}
	}

	if len(chunks) == 0 {
		return &Image{}, nil
	}

	sort.Sort(byPAddr(chunks))

	minPAddr := chunks[0].PAddr
	var maxPAddr uint64
	for _, c := range chunks {
		if end := c.PAddr + uint64(len(c.Data)); end > maxPAddr {
			maxPAddr = end
		}
	}

	data := make([]byte, maxPAddr-minPAddr)
	for i := range data {
		data[i] = 0xff
	}
	for _, c := range chunks {
		copy(data[c.PAddr-minPAddr:], c.Data)
	}

	return &Image{
		Addr: uint32(minPAddr),
		Data: data,
	}, nil
}
