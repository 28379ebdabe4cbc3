package market

var (
	marketRecordPrefix = []byte("market/record/")
	marketIndexKey     = []byte("market/index")
)

func marketRecordKey(id [32]byte) []byte {
	buf := make([]byte, len(marketRecordPrefix)+len(id))
	copy(buf, marketRecordPrefix)
	copy(buf[len(marketRecordPrefix):], id[:])
	return buf
}
