// Package timeline implements the content-addressed, hash-chained
// commit log of spec.md §4.E: every write produces one commit linking
// to its predecessor by hash, HEAD tracks the latest commit, and named
// snapshots pin older commits against garbage collection.
package timeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/xsleonard/go-merkle"

	"github.com/strataql/strata/internal/errs"
)

// TableRef pins one table's data as of a commit: the ordered list of
// its stripe content hashes, and a Merkle root over them so two
// TableRefs can be compared for equality in constant space.
type TableRef struct {
	Table         string   `json:"table"`
	StripeHashes  []string `json:"stripe_hashes"`
	StripeSetHash string   `json:"stripe_set_hash"`
}

// NewTableRef builds a TableRef from a table's stripe hash list,
// computing its Merkle root via go-merkle.
func NewTableRef(table string, stripeHashes []string) (TableRef, error) {
	ordered := append([]string(nil), stripeHashes...)
	sort.Strings(ordered)
	root, err := merkleRoot(ordered)
	if err != nil {
		return TableRef{}, err
	}
	return TableRef{Table: table, StripeHashes: ordered, StripeSetHash: root}, nil
}

func merkleRoot(leaves []string) (string, error) {
	if len(leaves) == 0 {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:]), nil
	}
	blocks := make([][]byte, len(leaves))
	for i, l := range leaves {
		blocks[i] = []byte(l)
	}
	tree := merkle.NewTree()
	if err := tree.Generate(blocks, sha256.New()); err != nil {
		return "", err
	}
	root := tree.Root()
	if root == nil {
		return "", fmt.Errorf("timeline: empty merkle root")
	}
	return hex.EncodeToString(root.Hash), nil
}

// Commit is one entry in the hash chain: a set of table refs as of this
// write, linked to its predecessor by PrevHash.
type Commit struct {
	Seq           uint64     `json:"seq"`
	PrevHash      string     `json:"prev_hash"`
	Timestamp     time.Time  `json:"timestamp"`
	SchemaVersion int        `json:"schema_version"`
	Message       string     `json:"message"`
	Tables        []TableRef `json:"tables"`
	Hash          string     `json:"hash"`
}

// contentHash is the sha256 over every field except Hash itself,
// computed from a canonical JSON encoding (Go's encoding/json already
// emits struct fields in a fixed order, so this is stable across runs).
func (c Commit) contentHash() (string, error) {
	c.Hash = ""
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// verifyLinkage checks that c's stored hash matches its own content and
// that it correctly chains to prev (empty prev means c must be the
// first commit, PrevHash == zero hash).
func verifyLinkage(c Commit, prevHash string) error {
	want, err := c.contentHash()
	if err != nil {
		return err
	}
	if want != c.Hash {
		return errs.Invariant("timeline.verifyLinkage", "I-CHAIN-HASH", fmt.Errorf("commit %d hash mismatch", c.Seq))
	}
	if c.PrevHash != prevHash {
		return errs.Invariant("timeline.verifyLinkage", "I-CHAIN-LINK", fmt.Errorf("commit %d does not chain to %q", c.Seq, prevHash))
	}
	return nil
}

// ErrConcurrentWrite is returned by Append when HEAD moved between the
// caller's read and its compare-and-swap, so the caller (or the
// built-in retrying Append) must recompute against the new HEAD.
var ErrConcurrentWrite = fmt.Errorf("timeline: concurrent write moved HEAD")

// Snapshot names a commit hash for GC-reachability and time travel.
type Snapshot struct {
	Name       string    `json:"name"`
	CommitHash string    `json:"commit_hash"`
	CreatedAt  time.Time `json:"created_at"`
}

// VerifyReport summarizes a full-chain integrity walk.
type VerifyReport struct {
	CommitCount int
	HeadHash    string
	OK          bool
	Err         error
}

// ReachabilityReport is the result of walking the chain from HEAD and
// every named snapshot: the set of still-reachable commits and the
// stripe hashes they pin. Anything outside StripeHashes is a garbage
// collection candidate; computing the complement against what is
// actually stored on disk is the caller's job (it has the blob listing).
type ReachabilityReport struct {
	ReachableCommits int
	StripeHashes     []string
}
