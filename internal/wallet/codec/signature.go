package codec

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Signature envelope wire format: a version byte, a big-endian uint16
// threshold, then one encoded part per signer. Verification on-chain assumes
// parts are sorted ascending by signer address.
const (
	envelopeVersion = 0x01

	flagSignature = 0x00
	flagAddress   = 0x01
	flagDynamic   = 0x02

	// ethSignFlag is appended to a raw ECDSA signature to mark it as an
	// eth_sign (ERC-191 personal message) signature.
	ethSignFlag = 0x02

	fullWeight = 0x01

	singleSignerThreshold uint16 = 1
	combinedThreshold     uint16 = 2

	ecdsaSignatureLength = 65
	// eoaSignatureLength is an ECDSA signature plus the trailing type flag.
	eoaSignatureLength = ecdsaSignatureLength + 1
)

// SignaturePart is one signer's contribution to a signature envelope.
//
// A part with a nil Signature encodes as a bare address entry. A part with
// Dynamic set encodes address, length and bytes. Any other part encodes as a
// fixed-length eth_sign signature entry, in which case the Signer field is
// not part of the encoding and is used for ordering only.
type SignaturePart struct {
	Signer    common.Address
	Weight    uint8
	Signature []byte
	Dynamic   bool
}

// EncodeEnvelope encodes a signature envelope with the given threshold. Parts
// are encoded in the order given; callers sort beforehand where required.
func EncodeEnvelope(threshold uint16, parts []SignaturePart) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(envelopeVersion)

	var thresholdBytes [2]byte
	binary.BigEndian.PutUint16(thresholdBytes[:], threshold)
	buf.Write(thresholdBytes[:])

	encoded, err := EncodeSignatureParts(parts)
	if err != nil {
		return nil, err
	}
	buf.Write(encoded)

	return buf.Bytes(), nil
}

// EncodeSignatureParts encodes the given parts without the envelope header.
// This is the shape the relaying service uses for its own signatures.
func EncodeSignatureParts(parts []SignaturePart) ([]byte, error) {
	var buf bytes.Buffer

	for _, part := range parts {
		switch {
		case part.Signature == nil:
			buf.WriteByte(flagAddress)
			buf.WriteByte(part.Weight)
			buf.Write(part.Signer.Bytes())

		case part.Dynamic:
			if len(part.Signature) > int(^uint16(0)) {
				return nil, errors.New("dynamic signature part exceeds encodable size")
			}
			buf.WriteByte(flagDynamic)
			buf.WriteByte(part.Weight)
			buf.Write(part.Signer.Bytes())
			var size [2]byte
			binary.BigEndian.PutUint16(size[:], uint16(len(part.Signature)))
			buf.Write(size[:])
			buf.Write(part.Signature)

		default:
			if len(part.Signature) != eoaSignatureLength {
				return nil, errors.Errorf("signature part must be %d bytes, got %d", eoaSignatureLength, len(part.Signature))
			}
			buf.WriteByte(flagSignature)
			buf.WriteByte(part.Weight)
			buf.Write(part.Signature)
		}
	}

	return buf.Bytes(), nil
}

// DecodeSignatureParts decodes a header-less part list, such as the signature
// bytes returned by the relaying service. Malformed input is a hard error.
func DecodeSignatureParts(data []byte) ([]SignaturePart, error) {
	var parts []SignaturePart

	for offset := 0; offset < len(data); {
		remaining := len(data) - offset
		const partHeaderLength = 2 // flag + weight
		if remaining < partHeaderLength {
			return nil, errors.New("truncated signature part header")
		}

		flag := data[offset]
		weight := data[offset+1]
		offset += partHeaderLength

		switch flag {
		case flagAddress:
			if len(data)-offset < common.AddressLength {
				return nil, errors.New("truncated address signature part")
			}
			parts = append(parts, SignaturePart{
				Signer: common.BytesToAddress(data[offset : offset+common.AddressLength]),
				Weight: weight,
			})
			offset += common.AddressLength

		case flagDynamic:
			if len(data)-offset < common.AddressLength+2 {
				return nil, errors.New("truncated dynamic signature part")
			}
			signer := common.BytesToAddress(data[offset : offset+common.AddressLength])
			offset += common.AddressLength
			size := int(binary.BigEndian.Uint16(data[offset : offset+2]))
			offset += 2
			if len(data)-offset < size {
				return nil, errors.New("truncated dynamic signature payload")
			}
			parts = append(parts, SignaturePart{
				Signer:    signer,
				Weight:    weight,
				Signature: bytes.Clone(data[offset : offset+size]),
				Dynamic:   true,
			})
			offset += size

		case flagSignature:
			if len(data)-offset < eoaSignatureLength {
				return nil, errors.New("truncated eth_sign signature part")
			}
			parts = append(parts, SignaturePart{
				Weight:    weight,
				Signature: bytes.Clone(data[offset : offset+eoaSignatureLength]),
			})
			offset += eoaSignatureLength

		default:
			return nil, errors.Errorf("unknown signature part flag 0x%02x", flag)
		}
	}

	if len(parts) == 0 {
		return nil, errors.New("empty signature part list")
	}

	return parts, nil
}

// PackSignatures combines the EOA's eth_sign signature with the relaying
// service's signature bytes into a threshold-2 envelope. Signers are ordered
// ascending by the numeric value of their addresses; on-chain verification
// depends on this ordering.
func PackSignatures(eoaSignature []byte, eoaAddress common.Address, relayerSignature []byte) ([]byte, error) {
	if len(eoaSignature) != eoaSignatureLength {
		return nil, errors.Errorf("eoa signature must be %d bytes, got %d", eoaSignatureLength, len(eoaSignature))
	}

	relayerParts, err := DecodeSignatureParts(relayerSignature)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode relayer signature")
	}

	for _, part := range relayerParts {
		if part.Signer == (common.Address{}) {
			return nil, errors.New("relayer signature part does not identify its signer")
		}
	}

	parts := append(relayerParts, SignaturePart{
		Signer:    eoaAddress,
		Weight:    fullWeight,
		Signature: eoaSignature,
	})

	sort.SliceStable(parts, func(i, j int) bool {
		return bytes.Compare(parts[i].Signer.Bytes(), parts[j].Signer.Bytes()) < 0
	})

	return EncodeEnvelope(combinedThreshold, parts)
}
