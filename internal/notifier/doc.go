// Package notifier shows alert notifications to users and reports what the
// user did with them.
//
// A Service displays a Notification under a caller-chosen id, can dismiss
// it again, and reports Clicked and Closed events for ids it showed to the
// handlers registered with OnEvent.
//
// # Drivers
//
//   - memory: keeps notifications in process. Click and Close simulate user
//     actions; used by tests and by the admin API.
//   - telegram: posts each notification as a message with Open and Dismiss
//     inline buttons to a configured chat.
package notifier
