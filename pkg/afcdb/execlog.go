package afcdb

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/afc"
)

// ExecLogVersion is the format version written into exec logs.
const ExecLogVersion = "0.1"

// BuildExecLog wraps trials on a run into an exec log. Trials missing an
// abstract id, run dir or timestamp inherit them from the log.
func BuildExecLog(dir rundir.Dir, abstractID string, trials []afc.ExecutionCase, task string) *afc.ExecLog {
	runDir := AbsRunDir(dir)
	now := Now()
	cases := make([]afc.ExecutionCase, 0, len(trials))
	for _, t := range trials {
		if t.AbstractSkillID == "" {
			t.AbstractSkillID = abstractID
		}
		if t.RunDir == "" {
			t.RunDir = runDir
		}
		if t.Timestamp == "" {
			t.Timestamp = now
		}
		cases = append(cases, t)
	}
	return &afc.ExecLog{
		Version:         ExecLogVersion,
		RunDir:          runDir,
		AbstractSkillID: abstractID,
		Task:            task,
		CreatedAt:       now,
		SkillCases:      cases,
	}
}

// ExecLogPath returns where an exec log of dir is stored.
func ExecLogPath(dir rundir.Dir, abstractID string, at time.Time) string {
	name := strings.NewReplacer(".", "_", ":", "_", "/", "_").Replace(abstractID)
	if name == "" {
		name = "unknown"
	}
	return dir.Path(rundir.AFCDir, rundir.AbstractExecLogsDir,
		"exec_"+name+"_"+at.UTC().Format("20060102T150405.000Z")+".json")
}

// WriteExecLog stores log under the afc/exec_logs directory of dir.
func WriteExecLog(dir rundir.Dir, log *afc.ExecLog) (string, error) {
	path := ExecLogPath(dir, log.AbstractSkillID, time.Now())
	if err := rundir.WriteJSON(path, log); err != nil {
		return "", errors.Wrap(err, "failed to write exec log")
	}
	return path, nil
}

// LoadExecLog reads an exec log file.
func LoadExecLog(path string) (*afc.ExecLog, error) {
	var log afc.ExecLog
	if err := rundir.ReadJSON(filepath.Clean(path), &log); err != nil {
		return nil, errors.Wrapf(err, "failed to read exec log %s", path)
	}
	return &log, nil
}
