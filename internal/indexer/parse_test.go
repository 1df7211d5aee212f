package indexer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestParseAddresses(t *testing.T) {
	a := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := common.HexToAddress("0x2222222222222222222222222222222222222222")

	got, err := ParseAddresses([]string{" 0x1111111111111111111111111111111111111111 ", "", b.Hex(), "0x1111111111111111111111111111111111111111"})
	require.NoError(t, err)
	require.Equal(t, []common.Address{a, b}, got)

	_, err = ParseAddresses([]string{"0x123"})
	require.ErrorContains(t, err, "invalid address")

	_, err = ParseAddresses([]string{"0x0000000000000000000000000000000000000000"})
	require.ErrorContains(t, err, "zero address")
}

func TestParseTopic0(t *testing.T) {
	topic := "0x00000000000000000000000000000000000000000000000000000000000000aa"
	got, err := ParseTopic0([]string{topic, "", topic})
	require.NoError(t, err)
	require.Equal(t, []common.Hash{common.HexToHash(topic)}, got)

	_, err = ParseTopic0([]string{"0xaa"})
	require.ErrorContains(t, err, "want 32 bytes")

	_, err = ParseTopic0([]string{"0xzz"})
	require.Error(t, err)
}

func TestParseTopic0EventNames(t *testing.T) {
	got, err := ParseTopic0([]string{"TokenSwapped", "poolcreated", topicHash(t, "TokenSwapped").Hex()})
	require.NoError(t, err)
	require.Equal(t, []common.Hash{topicHash(t, "TokenSwapped"), topicHash(t, "PoolCreated")}, got)

	_, err = ParseTopic0([]string{"Transfer"})
	require.ErrorContains(t, err, "unknown event")
}
