package protocol

import "testing"

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(10)

	if !fifo.IsEmpty() {
		t.Error("New FIFO should be empty")
	}

	data := []byte{1, 2, 3, 4, 5}
	written := fifo.Write(data)
	if written != 5 {
		t.Errorf("Expected to write 5 bytes, wrote %d", written)
	}
	if fifo.Free() != 4 {
		t.Errorf("Expected 4 bytes free, got %d", fifo.Free())
	}

	readBuf := make([]byte, 3)
	read := fifo.Read(readBuf)
	if read != 3 {
		t.Errorf("Expected to read 3 bytes, read %d", read)
	}
	if readBuf[0] != 1 || readBuf[1] != 2 || readBuf[2] != 3 {
		t.Errorf("Read data mismatch: got %v", readBuf)
	}
	if fifo.Available() != 2 {
		t.Errorf("After reading 3, expected 2 available, got %d", fifo.Available())
	}

	fifo.Reset()
	bigData := make([]byte, 12)
	written = fifo.Write(bigData)
	if written != 9 { // one slot reserved
		t.Errorf("Expected to write 9 bytes to size-10 FIFO, wrote %d", written)
	}
}

func TestFifoBufferWrapAround(t *testing.T) {
	fifo := NewFifoBuffer(5)

	fifo.Write([]byte{1, 2, 3, 4})
	readBuf := make([]byte, 2)
	fifo.Read(readBuf)

	written := fifo.Write([]byte{5, 6})
	if written != 2 {
		t.Errorf("Expected to write 2 bytes, wrote %d", written)
	}

	allData := make([]byte, 4)
	read := fifo.Read(allData)
	if read != 4 {
		t.Errorf("Expected to read 4 bytes, read %d", read)
	}
	if allData[0] != 3 || allData[1] != 4 || allData[2] != 5 || allData[3] != 6 {
		t.Errorf("Wrap-around data mismatch: got %v", allData)
	}
}

func TestPipe(t *testing.T) {
	device, host := NewPipe(8)

	if !host.Transmit([]byte{1, 2, 3, 4, 5}) {
		t.Fatal("Transmit into an empty pipe failed")
	}
	if host.Transmit([]byte{6, 7, 8, 9}) {
		t.Error("Expected Transmit to report busy when the peer is full")
	}

	device.SetMaxRead(2)
	buf := make([]byte, 8)
	if n := device.Receive(buf); n != 2 || buf[0] != 1 || buf[1] != 2 {
		t.Errorf("Expected first 2 bytes, got %d bytes %v", n, buf[:n])
	}

	if !host.Transmit(nil) {
		t.Error("Zero-length packet should always fit")
	}
	sent := host.Sent()
	if len(sent) != 2 || len(sent[1]) != 0 {
		t.Errorf("Expected 2 recorded packets, the last empty, got %v", sent)
	}
	if n := host.Receive(buf); n != 0 {
		t.Errorf("Expected nothing in the device-to-host direction, got %d bytes", n)
	}
}
