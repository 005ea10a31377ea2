package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// lensHubABI covers the LensHub functions the app calls.
const lensHubABI = `[
  {"type":"function","name":"post","stateMutability":"nonpayable",
   "inputs":[{"name":"vars","type":"tuple","components":[
     {"name":"profileId","type":"uint256"},
     {"name":"contentURI","type":"string"},
     {"name":"collectModule","type":"address"},
     {"name":"collectModuleInitData","type":"bytes"},
     {"name":"referenceModule","type":"address"},
     {"name":"referenceModuleInitData","type":"bytes"}]}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"comment","stateMutability":"nonpayable",
   "inputs":[{"name":"vars","type":"tuple","components":[
     {"name":"profileId","type":"uint256"},
     {"name":"contentURI","type":"string"},
     {"name":"profileIdPointed","type":"uint256"},
     {"name":"pubIdPointed","type":"uint256"},
     {"name":"referenceModuleData","type":"bytes"},
     {"name":"collectModule","type":"address"},
     {"name":"collectModuleInitData","type":"bytes"},
     {"name":"referenceModule","type":"address"},
     {"name":"referenceModuleInitData","type":"bytes"}]}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"collect","stateMutability":"nonpayable",
   "inputs":[
     {"name":"profileId","type":"uint256"},
     {"name":"pubId","type":"uint256"},
     {"name":"data","type":"bytes"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	lensHub  = mustParseABI(lensHubABI)
	boolArgs = abi.Arguments{{Type: mustType("bool")}}
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("ledger: parse LensHub abi: %v", err))
	}
	return parsed
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("ledger: abi type %s: %v", name, err))
	}
	return t
}

// postData is DataTypes.PostData.
type postData struct {
	ProfileID               *big.Int       `abi:"profileId"`
	ContentURI              string         `abi:"contentURI"`
	CollectModule           common.Address `abi:"collectModule"`
	CollectModuleInitData   []byte         `abi:"collectModuleInitData"`
	ReferenceModule         common.Address `abi:"referenceModule"`
	ReferenceModuleInitData []byte         `abi:"referenceModuleInitData"`
}

// commentData is DataTypes.CommentData.
type commentData struct {
	ProfileID               *big.Int       `abi:"profileId"`
	ContentURI              string         `abi:"contentURI"`
	ProfileIDPointed        *big.Int       `abi:"profileIdPointed"`
	PubIDPointed            *big.Int       `abi:"pubIdPointed"`
	ReferenceModuleData     []byte         `abi:"referenceModuleData"`
	CollectModule           common.Address `abi:"collectModule"`
	CollectModuleInitData   []byte         `abi:"collectModuleInitData"`
	ReferenceModule         common.Address `abi:"referenceModule"`
	ReferenceModuleInitData []byte         `abi:"referenceModuleInitData"`
}

// Keccak256 is the legacy Keccak hash used by the chain, not NIST SHA3.
func Keccak256(data []byte) []byte {
	return crypto.Keccak256(data)
}

// Selector is the 4-byte function selector for a canonical signature.
func Selector(signature string) []byte {
	return Keccak256([]byte(signature))[:4]
}

func parseUint(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
	if !ok || v.Sign() < 0 || v.BitLen() > 256 {
		return nil, fmt.Errorf("%s: invalid uint256 %q", name, s)
	}
	return v, nil
}

func parseAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", name, s)
	}
	return common.HexToAddress(s), nil
}

// EncodeBool is abi.encode(bool).
func EncodeBool(v bool) []byte {
	out, err := boolArgs.Pack(v)
	if err != nil {
		panic(fmt.Sprintf("ledger: pack bool: %v", err))
	}
	return out
}

func moduleArgs(m ModuleConfig) (collect, reference common.Address, err error) {
	if m.CollectModule == "" {
		return collect, reference, fmt.Errorf("collect module: %w", ErrUnresolvedContract)
	}
	if collect, err = parseAddress("collectModule", m.CollectModule); err != nil {
		return
	}
	ref := m.ReferenceModule
	if ref == "" {
		ref = ZeroAddress
	}
	reference, err = parseAddress("referenceModule", ref)
	return
}

// EncodePost builds calldata for LensHub.post.
func EncodePost(req PostRequest) ([]byte, error) {
	profile, err := parseUint("profileId", req.ProfileID)
	if err != nil {
		return nil, err
	}
	collect, reference, err := moduleArgs(req.Modules)
	if err != nil {
		return nil, err
	}
	data, err := lensHub.Pack("post", postData{
		ProfileID:               profile,
		ContentURI:              req.ContentURI,
		CollectModule:           collect,
		CollectModuleInitData:   nonNil(req.Modules.CollectModuleInitData),
		ReferenceModule:         reference,
		ReferenceModuleInitData: nonNil(req.Modules.ReferenceModuleInitData),
	})
	if err != nil {
		return nil, fmt.Errorf("pack post: %w", err)
	}
	return data, nil
}

// EncodeComment builds calldata for LensHub.comment.
func EncodeComment(req CommentRequest) ([]byte, error) {
	profile, err := parseUint("profileId", req.ProfileID)
	if err != nil {
		return nil, err
	}
	pointedProfile, err := parseUint("profileIdPointed", req.ProfileIDPointed)
	if err != nil {
		return nil, err
	}
	pointedPub, err := parseUint("pubIdPointed", req.PubIDPointed)
	if err != nil {
		return nil, err
	}
	collect, reference, err := moduleArgs(req.Modules)
	if err != nil {
		return nil, err
	}
	data, err := lensHub.Pack("comment", commentData{
		ProfileID:               profile,
		ContentURI:              req.ContentURI,
		ProfileIDPointed:        pointedProfile,
		PubIDPointed:            pointedPub,
		ReferenceModuleData:     nonNil(req.ReferenceModuleData),
		CollectModule:           collect,
		CollectModuleInitData:   nonNil(req.Modules.CollectModuleInitData),
		ReferenceModule:         reference,
		ReferenceModuleInitData: nonNil(req.Modules.ReferenceModuleInitData),
	})
	if err != nil {
		return nil, fmt.Errorf("pack comment: %w", err)
	}
	return data, nil
}

// EncodeCollect builds calldata for LensHub.collect.
func EncodeCollect(req CollectRequest) ([]byte, error) {
	profile, err := parseUint("profileId", req.ProfileID)
	if err != nil {
		return nil, err
	}
	pub, err := parseUint("pubId", req.PubID)
	if err != nil {
		return nil, err
	}
	data, err := lensHub.Pack("collect", profile, pub, nonNil(req.Data))
	if err != nil {
		return nil, fmt.Errorf("pack collect: %w", err)
	}
	return data, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
