package harvest

var feeShareKeyPrefix = []byte("harvest/feeshare/")

// Storage abstracts the subset of state manager functionality required by the
// harvest engine.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// FeeShareRecord marks a pool whose protocol fee share has been switched on.
// Records are written once and never removed.
type FeeShareRecord struct {
	Pool         [32]byte
	Divisor      uint8
	ConfiguredBy [20]byte
}

func feeShareKey(pool [32]byte) []byte {
	return append(append([]byte(nil), feeShareKeyPrefix...), pool[:]...)
}

func (e *Engine) feeShare(pool [32]byte) (*FeeShareRecord, bool, error) {
	record := new(FeeShareRecord)
	ok, err := e.state.KVGet(feeShareKey(pool), record)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return record, true, nil
}

func (e *Engine) putFeeShare(record *FeeShareRecord) error {
	return e.state.KVPut(feeShareKey(record.Pool), record)
}
