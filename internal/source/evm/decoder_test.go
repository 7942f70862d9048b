package evm

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testContract  = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	testToken     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testRecipient = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	depositTopic  = crypto.Keccak256Hash([]byte("Deposit(address,address,uint256)"))
)

func addrTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

func depositLog(block uint64, idx uint, amount *big.Int, tx string) types.Log {
	return types.Log{
		Address:     testContract,
		Topics:      []common.Hash{depositTopic, addrTopic(testToken), addrTopic(testRecipient)},
		Data:        common.LeftPadBytes(amount.Bytes(), 32),
		TxHash:      common.HexToHash(tx),
		BlockNumber: block,
		Index:       idx,
	}
}

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	ev, err := LoadDepositEvent("")
	require.NoError(t, err)
	dec, err := NewDecoder(testContract, ev)
	require.NoError(t, err)
	return dec
}

func TestEmbeddedABITopic(t *testing.T) {
	dec := newTestDecoder(t)
	assert.Equal(t, depositTopic, dec.Topic())
	assert.Equal(t, testContract, dec.Address())
}

func TestDecodeDeposit(t *testing.T) {
	dec := newTestDecoder(t)
	amount, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	dep, ok, err := dec.Decode(depositLog(102, 4, amount, "0xdead"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testToken, dep.Token)
	assert.Equal(t, testRecipient, dep.Recipient)
	assert.Equal(t, 0, dep.Amount.Cmp(amount))
	assert.Equal(t, common.HexToHash("0xdead"), dep.TxHash)
	assert.Equal(t, uint64(102), dep.BlockNumber)
	assert.Equal(t, uint(4), dep.LogIndex)
}

func TestDecodeSkipsForeignLogs(t *testing.T) {
	dec := newTestDecoder(t)

	other := depositLog(1, 0, big.NewInt(1), "0x1")
	other.Address = common.HexToAddress("0x01")
	_, ok, err := dec.Decode(other)
	require.NoError(t, err)
	assert.False(t, ok)

	transfer := depositLog(1, 0, big.NewInt(1), "0x1")
	transfer.Topics[0] = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	_, ok, err = dec.Decode(transfer)
	require.NoError(t, err)
	assert.False(t, ok)

	anonymous := depositLog(1, 0, big.NewInt(1), "0x1")
	anonymous.Topics = nil
	_, ok, err = dec.Decode(anonymous)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeMalformedData(t *testing.T) {
	dec := newTestDecoder(t)
	lg := depositLog(1, 0, big.NewInt(1), "0x1")
	lg.Data = []byte{0x01}
	_, _, err := dec.Decode(lg)
	assert.Error(t, err)

	lg = depositLog(1, 0, big.NewInt(1), "0x1")
	lg.Topics = lg.Topics[:2]
	_, _, err = dec.Decode(lg)
	assert.Error(t, err)
}

func TestDecodeAllKeepsOrder(t *testing.T) {
	dec := newTestDecoder(t)
	foreign := depositLog(5, 1, big.NewInt(9), "0x9")
	foreign.Address = common.HexToAddress("0x02")
	logs := []types.Log{
		depositLog(5, 0, big.NewInt(1), "0x1"),
		foreign,
		depositLog(5, 2, big.NewInt(2), "0x2"),
		depositLog(6, 0, big.NewInt(3), "0x3"),
	}
	deps, err := dec.DecodeAll(logs)
	require.NoError(t, err)
	require.Len(t, deps, 3)
	assert.Equal(t, int64(1), deps[0].Amount.Int64())
	assert.Equal(t, int64(2), deps[1].Amount.Int64())
	assert.Equal(t, int64(3), deps[2].Amount.Int64())
}

func TestLoadDepositEventFromFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, depositABIJSON, 0o644))
	ev, err := LoadDepositEvent(good)
	require.NoError(t, err)
	assert.Equal(t, "Deposit(address,address,uint256)", ev.Sig)

	noDeposit := filepath.Join(dir, "erc20.json")
	require.NoError(t, os.WriteFile(noDeposit, []byte(`[{"type":"event","name":"Transfer","inputs":[]}]`), 0o644))
	_, err = LoadDepositEvent(noDeposit)
	assert.ErrorContains(t, err, "no Deposit event")

	wrongShape := filepath.Join(dir, "wrong.json")
	require.NoError(t, os.WriteFile(wrongShape, []byte(`[{"type":"event","name":"Deposit","inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"recipient","type":"address","indexed":false},
		{"name":"amount","type":"uint256","indexed":false}]}]`), 0o644))
	_, err = LoadDepositEvent(wrongShape)
	assert.Error(t, err)

	_, err = LoadDepositEvent(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestNewDecoderRequiresEvent(t *testing.T) {
	_, err := NewDecoder(testContract, nil)
	assert.Error(t, err)
}
