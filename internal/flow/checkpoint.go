package flow

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/x448/float16"

	"github.com/born-ml/cinn/internal/tensor"
)

// Checkpoint file layout (little endian):
//
//	magic "CINN" | u32 version | u32 parameter count
//	per parameter:
//	  u16 name length | name bytes
//	  u8 storage (0 = float32, 1 = float16)
//	  u8 rank | u32 dims...
//	  payload
//
// Only parameter tensors are persisted; optimizer state and configuration
// stay with the caller.

const checkpointMagic = "CINN"
const checkpointVersion = 1

const (
	storageFloat32 byte = 0
	storageFloat16 byte = 1
)

// Save writes every network parameter to path. With half set, payloads are
// stored as IEEE float16, halving the file size at reduced precision.
func (n *Network[B]) Save(path string, half bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("flow checkpoint: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	params := n.Parameters()

	if _, err := w.WriteString(checkpointMagic); err != nil {
		return fmt.Errorf("flow checkpoint: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(checkpointVersion)); err != nil {
		return fmt.Errorf("flow checkpoint: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(params))); err != nil {
		return fmt.Errorf("flow checkpoint: %w", err)
	}

	for _, p := range params {
		if err := writeParam(w, p, half); err != nil {
			return fmt.Errorf("flow checkpoint: parameter %s: %w", p.Name(), err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flow checkpoint: %w", err)
	}
	return f.Close()
}

func writeParam[B tensor.Backend](w *bufio.Writer, p *Parameter[B], half bool) error {
	name := p.Name()
	if len(name) > 1<<16-1 {
		return fmt.Errorf("name too long (%d bytes)", len(name))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(name))); err != nil {
		return err
	}
	if _, err := w.WriteString(name); err != nil {
		return err
	}

	storage := storageFloat32
	if half {
		storage = storageFloat16
	}
	if err := w.WriteByte(storage); err != nil {
		return err
	}

	shape := p.Tensor().Shape()
	if err := w.WriteByte(byte(len(shape))); err != nil {
		return err
	}
	for _, d := range shape {
		if err := binary.Write(w, binary.LittleEndian, uint32(d)); err != nil {
			return err
		}
	}

	data := p.Tensor().Data()
	if half {
		for _, v := range data {
			if err := binary.Write(w, binary.LittleEndian, float16.Fromfloat32(v).Bits()); err != nil {
				return err
			}
		}
		return nil
	}
	return binary.Write(w, binary.LittleEndian, data)
}

// Load reads a checkpoint written by Save into the network's parameters.
// The parameter set and every tensor shape must match the constructed
// network exactly.
func (n *Network[B]) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("flow checkpoint: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, len(checkpointMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("flow checkpoint: %w", err)
	}
	if string(magic) != checkpointMagic {
		return fmt.Errorf("flow checkpoint: bad magic %q", magic)
	}
	var version, count uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("flow checkpoint: %w", err)
	}
	if version != checkpointVersion {
		return fmt.Errorf("flow checkpoint: unsupported version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("flow checkpoint: %w", err)
	}

	params := n.Parameters()
	byName := make(map[string]*Parameter[B], len(params))
	for _, p := range params {
		byName[p.Name()] = p
	}
	if int(count) != len(params) {
		return fmt.Errorf("flow checkpoint: file has %d parameters, network has %d", count, len(params))
	}

	for i := 0; i < int(count); i++ {
		if err := readParam(r, byName); err != nil {
			return fmt.Errorf("flow checkpoint: %w", err)
		}
	}
	return nil
}

func readParam[B tensor.Backend](r *bufio.Reader, byName map[string]*Parameter[B]) error {
	var nameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return err
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return err
	}
	name := string(nameBytes)

	storage, err := r.ReadByte()
	if err != nil {
		return err
	}
	rank, err := r.ReadByte()
	if err != nil {
		return err
	}
	shape := make(tensor.Shape, rank)
	for d := range shape {
		var dim uint32
		if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
			return err
		}
		shape[d] = int(dim)
	}

	p, ok := byName[name]
	if !ok {
		return fmt.Errorf("parameter %s not present in network", name)
	}
	if !p.Tensor().Shape().Equal(shape) {
		return fmt.Errorf("parameter %s: file shape %v, network shape %v", name, shape, p.Tensor().Shape())
	}

	data := p.Tensor().Data()
	switch storage {
	case storageFloat32:
		return binary.Read(r, binary.LittleEndian, data)
	case storageFloat16:
		for i := range data {
			var bits uint16
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return err
			}
			data[i] = float16.Frombits(bits).Float32()
		}
		return nil
	default:
		return fmt.Errorf("parameter %s: unknown storage kind %d", name, storage)
	}
}
