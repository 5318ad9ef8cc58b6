package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/smilemakc/mbflow/pkg/models"
)

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// ProgramToStorage converts a domain Program to its storage row. id is
// always supplied by the caller (new uuid on create, parsed existing id
// on update) since the domain model's ID is a string.
func ProgramToStorage(p *models.Program, id uuid.UUID) *ProgramModel {
	var currentVersionID *uuid.UUID
	if p.CurrentVersionID != "" {
		if v, err := uuid.Parse(p.CurrentVersionID); err == nil {
			currentVersionID = &v
		}
	}
	return &ProgramModel{
		ID:               id,
		Name:             p.Name,
		Language:         string(p.Language),
		UIType:           p.UIType,
		CurrentVersionID: currentVersionID,
		Permissions:      JSONBMap(p.Permissions),
		Metadata:         JSONBMap(p.Metadata),
	}
}

// ProgramFromStorage converts a storage row to a domain Program.
func ProgramFromStorage(pm *ProgramModel) *models.Program {
	p := &models.Program{
		ID:          pm.ID.String(),
		Name:        pm.Name,
		Language:    models.Language(pm.Language),
		UIType:      pm.UIType,
		Permissions: map[string]interface{}(pm.Permissions),
		Metadata:    map[string]interface{}(pm.Metadata),
		CreatedAt:   pm.CreatedAt,
		UpdatedAt:   pm.UpdatedAt,
	}
	if pm.CurrentVersionID != nil {
		p.CurrentVersionID = pm.CurrentVersionID.String()
	}
	return p
}

// VersionFilesToStorage converts domain VersionFile entries to the JSONB
// slice persisted on VersionModel.
func VersionFilesToStorage(files []models.VersionFile) JSONBSlice {
	out := make(JSONBSlice, len(files))
	for i, f := range files {
		out[i] = map[string]interface{}{
			"path":       f.Path,
			"storageKey": f.StorageKey,
			"hash":       f.Hash,
			"size":       f.Size,
			"fileType":   f.FileType,
		}
	}
	return out
}

// VersionFilesFromStorage converts the JSONB files slice back to domain
// VersionFile entries.
func VersionFilesFromStorage(raw JSONBSlice) []models.VersionFile {
	files := make([]models.VersionFile, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		size, _ := m["size"].(float64)
		files = append(files, models.VersionFile{
			Path:       stringOf(m["path"]),
			StorageKey: stringOf(m["storageKey"]),
			Hash:       stringOf(m["hash"]),
			Size:       int64(size),
			FileType:   stringOf(m["fileType"]),
		})
	}
	return files
}

// VersionToStorage converts a domain Version to its storage row.
func VersionToStorage(v *models.Version, id, programID uuid.UUID) *VersionModel {
	return &VersionModel{
		ID:        id,
		ProgramID: programID,
		Number:    v.Number,
		Status:    string(v.Status),
		Files:     VersionFilesToStorage(v.Files),
	}
}

// VersionFromStorage converts a storage row to a domain Version.
func VersionFromStorage(vm *VersionModel) *models.Version {
	return &models.Version{
		ID:        vm.ID.String(),
		ProgramID: vm.ProgramID.String(),
		Number:    vm.Number,
		Status:    models.VersionStatus(vm.Status),
		Files:     VersionFilesFromStorage(vm.Files),
		CreatedAt: vm.CreatedAt,
		UpdatedAt: vm.UpdatedAt,
	}
}

// UiComponentToStorage converts a domain UiComponent to its storage row.
func UiComponentToStorage(c *models.UiComponent, id, programID, versionID uuid.UUID) *UiComponentModel {
	return &UiComponentModel{
		ID:            id,
		ProgramID:     programID,
		VersionID:     versionID,
		Type:          c.Type,
		Name:          c.Name,
		Configuration: JSONBMap(c.Configuration),
		Schema:        JSONBMap(c.Schema),
		Status:        string(c.Status),
	}
}

// UiComponentFromStorage converts a storage row to a domain UiComponent.
func UiComponentFromStorage(cm *UiComponentModel) *models.UiComponent {
	return &models.UiComponent{
		ID:            cm.ID.String(),
		ProgramID:     cm.ProgramID.String(),
		VersionID:     cm.VersionID.String(),
		Type:          cm.Type,
		Name:          cm.Name,
		Configuration: map[string]interface{}(cm.Configuration),
		Schema:        map[string]interface{}(cm.Schema),
		Status:        models.UiComponentStatus(cm.Status),
		CreatedAt:     cm.CreatedAt,
		UpdatedAt:     cm.UpdatedAt,
	}
}

// ProgramExecutionToStorage converts a domain Execution to its storage
// row.
func ProgramExecutionToStorage(e *models.Execution, id, programID, versionID uuid.UUID) *ProgramExecutionModel {
	row := &ProgramExecutionModel{
		ID:          id,
		ProgramID:   programID,
		VersionID:   versionID,
		UserID:      e.UserID,
		Status:      string(e.Status),
		Parameters:  JSONBMap(e.Parameters),
		CPUTimeMs:   e.ResourceUsage.CPUTimeMs,
		MemoryUsed:  e.ResourceUsage.MemoryUsed,
		DiskUsed:    e.ResourceUsage.DiskUsed,
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
	}
	if e.Results != nil {
		row.ExitCode = e.Results.ExitCode
		row.Output = e.Results.Output
		row.OutputFiles = stringsToJSONBSlice(e.Results.OutputFiles)
		row.Error = e.Results.Error
	}
	return row
}

// ProgramExecutionFromStorage converts a storage row to a domain
// Execution.
func ProgramExecutionFromStorage(em *ProgramExecutionModel) *models.Execution {
	e := &models.Execution{
		ID:        em.ID.String(),
		ProgramID: em.ProgramID.String(),
		VersionID: em.VersionID.String(),
		UserID:    em.UserID,
		Status:    models.ExecutionStatus(em.Status),
		Parameters: map[string]interface{}(em.Parameters),
		ResourceUsage: models.ResourceUsage{
			CPUTimeMs:  em.CPUTimeMs,
			MemoryUsed: em.MemoryUsed,
			DiskUsed:   em.DiskUsed,
		},
		StartedAt:   em.StartedAt,
		CompletedAt: em.CompletedAt,
	}
	if em.IsTerminal() {
		e.Results = &models.ExecutionResults{
			ExitCode:    em.ExitCode,
			Output:      em.Output,
			OutputFiles: jsonbSliceToStrings(em.OutputFiles),
			Error:       em.Error,
		}
	}
	return e
}

func stringsToJSONBSlice(in []string) JSONBSlice {
	out := make(JSONBSlice, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func jsonbSliceToStrings(in JSONBSlice) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// WorkflowExecutionToStorage converts a domain WorkflowExecution to its
// storage row (the NodeExecutions relation is persisted separately).
func WorkflowExecutionToStorage(we *models.WorkflowExecution, id, workflowID uuid.UUID) *WorkflowExecutionModel {
	progress := JSONBMap{
		"totalNodes": we.Progress.TotalNodes,
		"completed":  we.Progress.Completed,
		"failed":     we.Progress.Failed,
		"skipped":    we.Progress.Skipped,
		"running":    we.Progress.Running,
		"percent":    we.Progress.Percent,
	}
	execCtx := JSONBMap{
		"userInputs":              we.ExecutionContext.UserInputs,
		"globalVariables":         we.ExecutionContext.GlobalVariables,
		"environment":             we.ExecutionContext.Environment,
		"mode":                    we.ExecutionContext.Mode,
		"saveIntermediateResults": we.ExecutionContext.SaveIntermediateResults,
		"maxConcurrentNodes":      we.ExecutionContext.MaxConcurrentNodes,
		"timeoutMinutes":          we.ExecutionContext.TimeoutMinutes,
		"continueOnError":         we.ExecutionContext.ContinueOnError,
	}
	results := JSONBMap{
		"finalOutputs":        we.Results.FinalOutputs,
		"intermediateResults": we.Results.IntermediateResults,
		"outputFiles":         we.Results.OutputFiles,
		"statistics":          we.Results.Statistics,
	}
	resourceUsage := JSONBMap{
		"cpuTime":    we.ResourceUsage.CPUTimeMs,
		"memoryUsed": we.ResourceUsage.MemoryUsed,
		"diskUsed":   we.ResourceUsage.DiskUsed,
	}
	return &WorkflowExecutionModel{
		ID:               id,
		WorkflowID:       workflowID,
		WorkflowVersion:  we.WorkflowVersion,
		ExecutedBy:       we.ExecutedBy,
		Status:           string(we.Status),
		Progress:         progress,
		ExecutionContext: execCtx,
		Results:          results,
		Error:            we.Error,
		Logs:             stringsToJSONBSlice(we.Logs),
		ResourceUsage:    resourceUsage,
		StartedAt:        we.StartedAt,
		CompletedAt:      we.CompletedAt,
	}
}

// WorkflowExecutionFromStorage converts a storage row (with its
// NodeExecutions relation preloaded) to a domain WorkflowExecution.
func WorkflowExecutionFromStorage(wem *WorkflowExecutionModel) *models.WorkflowExecution {
	we := &models.WorkflowExecution{
		ID:              wem.ID.String(),
		WorkflowID:      wem.WorkflowID.String(),
		WorkflowVersion: wem.WorkflowVersion,
		ExecutedBy:      wem.ExecutedBy,
		Status:          models.WorkflowExecutionStatus(wem.Status),
		Error:           wem.Error,
		Logs:            jsonbSliceToStrings(wem.Logs),
		StartedAt:       wem.StartedAt,
		CompletedAt:     wem.CompletedAt,
	}
	we.Progress = models.Progress{
		TotalNodes: wem.Progress.GetInt("totalNodes"),
		Completed:  wem.Progress.GetInt("completed"),
		Failed:     wem.Progress.GetInt("failed"),
		Skipped:    wem.Progress.GetInt("skipped"),
		Running:    wem.Progress.GetInt("running"),
		Percent:    wem.Progress.GetFloat("percent"),
	}
	we.ExecutionContext = models.ExecutionContext{
		Mode:                    wem.ExecutionContext.GetString("mode"),
		SaveIntermediateResults: wem.ExecutionContext.GetBool("saveIntermediateResults"),
		MaxConcurrentNodes:      wem.ExecutionContext.GetInt("maxConcurrentNodes"),
		TimeoutMinutes:          wem.ExecutionContext.GetInt("timeoutMinutes"),
		ContinueOnError:         wem.ExecutionContext.GetBool("continueOnError"),
	}
	if m, ok := wem.ExecutionContext["userInputs"].(map[string]interface{}); ok {
		we.ExecutionContext.UserInputs = m
	}
	if m, ok := wem.ExecutionContext["globalVariables"].(map[string]interface{}); ok {
		we.ExecutionContext.GlobalVariables = m
	}
	if m, ok := wem.ExecutionContext["environment"].(map[string]interface{}); ok {
		env := make(map[string]string, len(m))
		for k, v := range m {
			env[k] = stringOf(v)
		}
		we.ExecutionContext.Environment = env
	}
	we.ResourceUsage = models.ResourceUsage{
		CPUTimeMs:  int64(wem.ResourceUsage.GetInt("cpuTime")),
		MemoryUsed: int64(wem.ResourceUsage.GetInt("memoryUsed")),
		DiskUsed:   int64(wem.ResourceUsage.GetInt("diskUsed")),
	}
	if m, ok := wem.Results["finalOutputs"].(map[string]interface{}); ok {
		we.Results.FinalOutputs = m
	}
	if m, ok := wem.Results["statistics"].(map[string]interface{}); ok {
		we.Results.Statistics = m
	}
	for _, ne := range wem.NodeExecutions {
		we.NodeExecutions = append(we.NodeExecutions, NodeExecutionFromStorage(ne))
	}
	return we
}

// NodeExecutionToStorage converts a domain NodeExecution to its storage
// row.
func NodeExecutionToStorage(ne *models.NodeExecution, id, workflowExecutionID uuid.UUID) *NodeExecutionModel {
	row := &NodeExecutionModel{
		ID:                  id,
		WorkflowExecutionID: workflowExecutionID,
		NodeID:              ne.NodeID,
		Status:              string(ne.Status),
		Input:               JSONBMap(ne.Input),
		Output:              JSONBMap(ne.Output),
		Error:               ne.Error,
		SkipReason:          ne.SkipReason,
		RetryCount:          ne.RetryCount,
		StartedAt:           ne.StartedAt,
		CompletedAt:         ne.CompletedAt,
	}
	if ne.ProgramExecutionID != "" {
		if id, err := uuid.Parse(ne.ProgramExecutionID); err == nil {
			row.ProgramExecutionID = &id
		}
	}
	return row
}

// NodeExecutionFromStorage converts a storage row to a domain
// NodeExecution.
func NodeExecutionFromStorage(nem *NodeExecutionModel) *models.NodeExecution {
	ne := &models.NodeExecution{
		ID:                  nem.ID.String(),
		WorkflowExecutionID: nem.WorkflowExecutionID.String(),
		NodeID:              nem.NodeID,
		Status:              models.NodeExecutionStatus(nem.Status),
		Input:               map[string]interface{}(nem.Input),
		Output:              map[string]interface{}(nem.Output),
		Error:               nem.Error,
		SkipReason:          nem.SkipReason,
		RetryCount:          nem.RetryCount,
		StartedAt:           nem.StartedAt,
		CompletedAt:         nem.CompletedAt,
	}
	if nem.ProgramExecutionID != nil {
		ne.ProgramExecutionID = nem.ProgramExecutionID.String()
	}
	return ne
}

// UIInteractionToStorage converts a domain UIInteraction to its storage
// row.
func UIInteractionToStorage(i *models.UIInteraction, id, workflowExecutionID uuid.UUID) *UIInteractionModel {
	row := &UIInteractionModel{
		ID:                  id,
		WorkflowExecutionID: workflowExecutionID,
		NodeID:              i.NodeID,
		Type:                string(i.Type),
		Status:              string(i.Status),
		InputSchema:         JSONBMap(i.InputSchema),
		OutputData:          JSONBMap(i.OutputData),
		CreatedAt:           i.CreatedAt,
		CompletedAt:         i.CompletedAt,
	}
	if i.Timeout != nil {
		secs := int(i.Timeout.Seconds())
		row.TimeoutSeconds = &secs
	}
	return row
}

// UIInteractionFromStorage converts a storage row to a domain
// UIInteraction.
func UIInteractionFromStorage(um *UIInteractionModel) *models.UIInteraction {
	i := &models.UIInteraction{
		ID:                  um.ID.String(),
		WorkflowExecutionID: um.WorkflowExecutionID.String(),
		NodeID:              um.NodeID,
		Type:                models.InteractionType(um.Type),
		Status:              models.UIInteractionStatus(um.Status),
		InputSchema:         map[string]interface{}(um.InputSchema),
		OutputData:          map[string]interface{}(um.OutputData),
		CreatedAt:           um.CreatedAt,
		CompletedAt:         um.CompletedAt,
	}
	if um.TimeoutSeconds != nil {
		d := secondsToDuration(*um.TimeoutSeconds)
		i.Timeout = &d
	}
	return i
}
