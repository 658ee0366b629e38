// Package version orders source versions and reports available updates.
package version

import (
	"slices"

	"github.com/dan-solli/sourcebook/pkg/catalog"
	"github.com/dan-solli/sourcebook/pkg/content"
	"github.com/dan-solli/sourcebook/pkg/key"
)

// CompareVersions orders two MAJOR.MINOR.PATCH strings numerically by
// component. It returns -1, 0 or +1.
func CompareVersions(a, b string) (int, error) {
	va, err := key.ParseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := key.ParseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// Update describes newer versions of one identity.
type Update struct {
	HasUpdate bool `json:"hasUpdate"`
	// NewerVersions holds every known version greater than the current one,
	// oldest first.
	NewerVersions []key.SourceKey `json:"newerVersions"`
	Latest        key.SourceKey   `json:"latest"`
}

// CheckForUpdate parses currentKey and checks it against groups.
func CheckForUpdate(currentKey string, groups catalog.Groups) (Update, error) {
	sk, err := key.ParseSourceKey(currentKey)
	if err != nil {
		return Update{}, err
	}
	return Check(sk, groups), nil
}

// Check reports versions of current's identity newer than current. An
// identity missing from groups yields no update and current as Latest.
func Check(current key.SourceKey, groups catalog.Groups) Update {
	group, ok := groups.Find(current.ID())
	if !ok || len(group.Versions) == 0 {
		return Update{Latest: current}
	}

	var newer []key.SourceKey
	latest := current
	for _, sk := range group.Versions {
		if sk.Version().Compare(current.Version()) > 0 {
			newer = append(newer, sk)
		}
		if sk.Version().Compare(latest.Version()) > 0 {
			latest = sk
		}
	}
	slices.SortFunc(newer, func(a, b key.SourceKey) int {
		return a.Version().Compare(b.Version())
	})
	return Update{HasUpdate: len(newer) > 0, NewerVersions: newer, Latest: latest}
}

// DependencyUpdate is the update status of one character dependency.
type DependencyUpdate struct {
	Current key.SourceKey `json:"current"`
	Primary bool          `json:"primary"`
	Update
}

// CheckCharacter checks the primary and every secondary dependency of ch,
// in declaration order.
func CheckCharacter(ch *content.Character, groups catalog.Groups) []DependencyUpdate {
	var out []DependencyUpdate
	for i, sk := range ch.Dependencies.All() {
		out = append(out, DependencyUpdate{
			Current: sk,
			Primary: i == 0 && sk == ch.Dependencies.Primary,
			Update:  Check(sk, groups),
		})
	}
	return out
}
