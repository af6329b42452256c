// Package audit records privilege-sensitive actions as append-only records.
//
// # Vocabulary
//
// Records carry an actor, an Action drawn from KnownActions (login, logout,
// role_switch, role_impersonation, user_impersonation, exit_impersonation,
// assigned_role, revoked_role), an optional target and a free-form details
// payload.
//
// # Best effort
//
// Producers call Recorder.Record, which never fails. AsyncRecorder hands the
// append to an async.Dispatcher; append failures and queue overflow are
// logged and counted but never roll back the action that produced them.
//
//	recorder := audit.NewAsyncRecorder(appender, dispatcher,
//		audit.WithLogger(logger), audit.WithMetrics(metrics))
//	recorder.Record(ctx, audit.Record{
//		ActorID:    admin.UserID,
//		ActorEmail: admin.Email,
//		Action:     audit.ActionUserImpersonation,
//		TargetType: audit.TargetUser,
//		TargetID:   target.ID,
//	})
//
// # Destinations
//
// DBAppender writes to the audit_records table, FileAppender mirrors NDJSON
// to disk and MultiAppender fans out to several destinations.
package audit
