package audio

import "encoding/binary"

// BytesToInt16 将 PCM16LE 字节转换为样本，末尾不足一个样本的字节被忽略
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// Int16ToBytes 将样本编码为 PCM16LE
func Int16ToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	return data
}
