/*
Copyright 2026 The kube-borg-backup authors.

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package worker

import (
	"context"
	"encoding/json"
	"fmt"
)

// Archive is one entry of the archive engine's `list --json` output.
type Archive struct {
	Name string `json:"name"`
	Time string `json:"time"`
	ID   string `json:"id"`
}

// ListOutput is the §6 "Worker list output" JSON object written to stdout.
type ListOutput struct {
	Repository   string    `json:"repository"`
	ArchiveCount int       `json:"archive_count"`
	Archives     []Archive `json:"archives"`
}

// borgArchive mirrors the subset of the archive engine's own list --json
// schema this worker consumes.
type borgArchive struct {
	Archives []struct {
		Name string `json:"name"`
		Time string `json:"time"`
		ID   string `json:"id"`
	} `json:"archives"`
}

// RunList executes §6's worker list operation against glob, returning the
// normalized output the caller writes to stdout as JSON. Log-style messages
// must go to stderr, never stdout, so callers use c.Log for everything
// except this return value.
func (c *Context) RunList(ctx context.Context, glob string) (*ListOutput, error) {
	if err := c.EnsureRepository(ctx); err != nil {
		return nil, err
	}

	res, err := c.Engine.List(ctx, glob)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("archive engine list exited %d: %s", res.ExitCode, res.Stderr)
	}

	var parsed borgArchive
	if err := json.Unmarshal([]byte(res.Stdout), &parsed); err != nil {
		return nil, fmt.Errorf("parsing archive engine list output: %w", err)
	}

	out := &ListOutput{Repository: c.Config.BorgRepo, Archives: make([]Archive, 0, len(parsed.Archives))}
	for _, a := range parsed.Archives {
		id := a.ID
		if len(id) > 12 {
			id = id[:12]
		}
		out.Archives = append(out.Archives, Archive{Name: a.Name, Time: a.Time, ID: id})
	}
	out.ArchiveCount = len(out.Archives)
	return out, nil
}
