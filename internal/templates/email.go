// Package templates renders the HTML bodies of outbound notification emails.
// Each action type has exactly one template; rendering is a pure function of
// its data struct.
package templates

import (
	"bytes"
	"fmt"
	"html/template"
)

const layout = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933; margin: 0; padding: 24px; background-color: #f5f7fa;">
  <div style="max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 8px; padding: 32px;">
    <h2 style="margin-top: 0; color: #102a43;">{{.Heading}}</h2>
    {{.Body}}
    {{if .ActionURL}}
    <p style="margin-top: 24px;">
      <a href="{{.ActionURL}}" style="background-color: #2563eb; color: #ffffff; padding: 12px 24px; border-radius: 6px; text-decoration: none;">{{.ActionLabel}}</a>
    </p>
    {{end}}
    <p style="margin-top: 32px; font-size: 12px; color: #829ab1;">This is an automated message, please do not reply.</p>
  </div>
</body>
</html>`

var layoutTmpl = template.Must(template.New("layout").Parse(layout))

type layoutData struct {
	Heading     string
	Body        template.HTML
	ActionURL   string
	ActionLabel string
}

func render(heading string, body *bytes.Buffer, actionURL, actionLabel string) (string, error) {
	var out bytes.Buffer
	err := layoutTmpl.Execute(&out, layoutData{
		Heading:     heading,
		Body:        template.HTML(body.String()), //nolint:gosec // body is rendered from escaped templates below
		ActionURL:   actionURL,
		ActionLabel: actionLabel,
	})
	if err != nil {
		return "", fmt.Errorf("render email layout: %w", err)
	}
	return out.String(), nil
}

var taskAssignedTmpl = template.Must(template.New("taskAssigned").Parse(`
<p>Hello {{.AssigneeName}},</p>
<p>A new task has been assigned to you in <strong>{{.ProjectName}}</strong>:</p>
<p style="font-size: 16px;"><strong>{{.TaskTitle}}</strong></p>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<ul>
  <li>Priority: {{.Priority}}</li>
  {{if .DueDate}}<li>Due date: {{.DueDate}}</li>{{end}}
</ul>
{{if .HasConfirmation}}<p>Please confirm you are taking this task by clicking the button below. The task will move to "In progress" once confirmed.</p>{{end}}`))

// TaskAssignedData feeds the TASK_CREATED / TASK_ASSIGNED template.
type TaskAssignedData struct {
	AssigneeName    string
	TaskTitle       string
	Description     string
	ProjectName     string
	Priority        string
	DueDate         string
	ConfirmationURL string
}

// TaskAssigned renders the assignment notification.
func TaskAssigned(data TaskAssignedData) (string, error) {
	var body bytes.Buffer
	payload := struct {
		TaskAssignedData
		HasConfirmation bool
	}{data, data.ConfirmationURL != ""}
	if err := taskAssignedTmpl.Execute(&body, payload); err != nil {
		return "", fmt.Errorf("render task assigned: %w", err)
	}
	label := ""
	if data.ConfirmationURL != "" {
		label = "Accept the task"
	}
	return render("New task assigned", &body, data.ConfirmationURL, label)
}

var taskStatusChangedTmpl = template.Must(template.New("taskStatusChanged").Parse(`
<p>{{.EmployeeName}} changed the status of task <strong>{{.TaskTitle}}</strong> in {{.ProjectName}}.</p>
<p>{{.OldStatus}} &rarr; <strong>{{.NewStatus}}</strong></p>
{{if .Comment}}<p>Comment: {{.Comment}}</p>{{end}}
{{if .HasConfirmation}}<p>Click below to acknowledge this change.</p>{{end}}`))

// TaskStatusChangedData feeds the TASK_STATUS_CHANGED template.
type TaskStatusChangedData struct {
	EmployeeName    string
	TaskTitle       string
	ProjectName     string
	OldStatus       string
	NewStatus       string
	Comment         string
	ConfirmationURL string
}

// TaskStatusChanged renders the status-change notification.
func TaskStatusChanged(data TaskStatusChangedData) (string, error) {
	var body bytes.Buffer
	payload := struct {
		TaskStatusChangedData
		HasConfirmation bool
	}{data, data.ConfirmationURL != ""}
	if err := taskStatusChangedTmpl.Execute(&body, payload); err != nil {
		return "", fmt.Errorf("render task status changed: %w", err)
	}
	label := ""
	if data.ConfirmationURL != "" {
		label = "Acknowledge"
	}
	return render("Task status changed", &body, data.ConfirmationURL, label)
}

var taskCompletedTmpl = template.Must(template.New("taskCompleted").Parse(`
<p>{{.EmployeeName}} completed the task <strong>{{.TaskTitle}}</strong> in {{.ProjectName}}.</p>
{{if .Comment}}<p>Completion note: {{.Comment}}</p>{{end}}`))

// TaskCompletedData feeds the TASK_COMPLETED template.
type TaskCompletedData struct {
	EmployeeName string
	TaskTitle    string
	ProjectName  string
	Comment      string
}

// TaskCompleted renders the completion notification.
func TaskCompleted(data TaskCompletedData) (string, error) {
	var body bytes.Buffer
	if err := taskCompletedTmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render task completed: %w", err)
	}
	return render("Task completed", &body, "", "")
}

var taskUpdatedTmpl = template.Must(template.New("taskUpdated").Parse(`
<p>The task <strong>{{.TaskTitle}}</strong> was updated by {{.UpdatedBy}}.</p>
<p>{{.Changes}}</p>`))

// TaskUpdatedData feeds the TASK_UPDATED template.
type TaskUpdatedData struct {
	TaskTitle string
	UpdatedBy string
	Changes   string
}

// TaskUpdated renders the update notification.
func TaskUpdated(data TaskUpdatedData) (string, error) {
	var body bytes.Buffer
	if err := taskUpdatedTmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render task updated: %w", err)
	}
	return render("Task updated", &body, "", "")
}

var taskRejectedTmpl = template.Must(template.New("taskRejected").Parse(`
<p>Hello {{.ManagerName}},</p>
<p>{{.EmployeeName}} declined the task <strong>{{.TaskTitle}}</strong> in {{.ProjectName}}.</p>
<p>Reason: {{.Reason}}</p>
<p>The task keeps its current status and may need to be reassigned.</p>`))

// TaskRejectedData feeds the TASK_REJECTED template.
type TaskRejectedData struct {
	ManagerName  string
	EmployeeName string
	TaskTitle    string
	ProjectName  string
	Reason       string
}

// TaskRejected renders the rejection notification sent to superiors.
func TaskRejected(data TaskRejectedData) (string, error) {
	var body bytes.Buffer
	if err := taskRejectedTmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render task rejected: %w", err)
	}
	return render("Task declined", &body, "", "")
}

var projectCreatedTmpl = template.Must(template.New("projectCreated").Parse(`
<p>A new project <strong>{{.ProjectName}}</strong> was created by {{.CreatedBy}}.</p>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<ul>
  {{if .StartDate}}<li>Start date: {{.StartDate}}</li>{{end}}
  {{if .DueDate}}<li>Due date: {{.DueDate}}</li>{{end}}
</ul>`))

// ProjectCreatedData feeds the PROJECT_CREATED template.
type ProjectCreatedData struct {
	ProjectName string
	Description string
	CreatedBy   string
	StartDate   string
	DueDate     string
}

// ProjectCreated renders the project creation notification.
func ProjectCreated(data ProjectCreatedData) (string, error) {
	var body bytes.Buffer
	if err := projectCreatedTmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render project created: %w", err)
	}
	return render("New project created", &body, "", "")
}

var stageCompletedTmpl = template.Must(template.New("stageCompleted").Parse(`
<p>The stage <strong>{{.StageName}}</strong> of project {{.ProjectName}} was completed by {{.CompletedBy}}.</p>
{{if .NextStageName}}<p>Next stage now in progress: <strong>{{.NextStageName}}</strong></p>{{end}}`))

// StageCompletedData feeds the STAGE_COMPLETED template.
type StageCompletedData struct {
	StageName     string
	ProjectName   string
	CompletedBy   string
	NextStageName string
}

// StageCompleted renders the stage completion notification.
func StageCompleted(data StageCompletedData) (string, error) {
	var body bytes.Buffer
	if err := stageCompletedTmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render stage completed: %w", err)
	}
	return render("Stage completed", &body, "", "")
}

var stageUpdatedTmpl = template.Must(template.New("stageUpdated").Parse(`
<p>{{.EmployeeName}} changed the status of stage <strong>{{.StageName}}</strong> in {{.ProjectName}}.</p>
<p>{{.OldStatus}} &rarr; <strong>{{.NewStatus}}</strong></p>
{{if .Comment}}<p>Comment: {{.Comment}}</p>{{end}}`))

// StageUpdatedData feeds the STAGE_UPDATED template.
type StageUpdatedData struct {
	EmployeeName    string
	StageName       string
	ProjectName     string
	OldStatus       string
	NewStatus       string
	Comment         string
	ConfirmationURL string
}

// StageUpdated renders the stage status-change notification.
func StageUpdated(data StageUpdatedData) (string, error) {
	var body bytes.Buffer
	if err := stageUpdatedTmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render stage updated: %w", err)
	}
	label := ""
	if data.ConfirmationURL != "" {
		label = "Acknowledge"
	}
	return render("Stage updated", &body, data.ConfirmationURL, label)
}

var acknowledgementTmpl = template.Must(template.New("acknowledgement").Parse(`
<p>{{.UserName}} acknowledged the status change of {{.EntityLabel}} <strong>{{.EntityName}}</strong>{{if .ProjectName}} in {{.ProjectName}}{{end}}.</p>
<p>{{.OldStatus}} &rarr; <strong>{{.NewStatus}}</strong></p>`))

// AcknowledgementData feeds the confirmation acknowledgement template.
type AcknowledgementData struct {
	UserName    string
	EntityLabel string
	EntityName  string
	ProjectName string
	OldStatus   string
	NewStatus   string
}

// Acknowledgement renders the email sent to responsibles once a recipient
// confirms a status change.
func Acknowledgement(data AcknowledgementData) (string, error) {
	var body bytes.Buffer
	if err := acknowledgementTmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render acknowledgement: %w", err)
	}
	return render("Change acknowledged", &body, "", "")
}

var taskStartedTmpl = template.Must(template.New("taskStarted").Parse(`
<p>{{.UserName}} accepted the task <strong>{{.TaskTitle}}</strong>{{if .ProjectName}} in {{.ProjectName}}{{end}}.</p>
<p>The task is now in progress.</p>`))

// TaskStartedData feeds the assignment-confirmed template.
type TaskStartedData struct {
	UserName    string
	TaskTitle   string
	ProjectName string
}

// TaskStarted renders the email sent to responsibles once an assignee
// confirms a task assignment.
func TaskStarted(data TaskStartedData) (string, error) {
	var body bytes.Buffer
	if err := taskStartedTmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render task started: %w", err)
	}
	return render("Task accepted", &body, "", "")
}
