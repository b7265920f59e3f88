/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notify

import (
	"bytes"
	"fmt"
	"net/smtp"
)

// ECCAlertEmail is a ready-to-send MIME-ish email, built but not
// necessarily sent — it mirrors the source's create_email() helper, which
// nothing in the repair manager currently calls (see (*repair.Manager).SendEmails).
type ECCAlertEmail struct {
	Subject string
	To      string
	Body    string
}

// BuildECCAlertEmail ports create_email's ECC-uncorrectable-error alert
// template: it lists the affected nodes and warns the job owner a reboot is
// coming, with a softer message when reboot is not yet scheduled.
func BuildECCAlertEmail(jobID, jobOwnerEmail string, nodeNames []string, jobLink, clusterName string, rebootEnabled bool, daysUntilReboot int) ECCAlertEmail {
	var body bytes.Buffer
	fmt.Fprintf(&body, "<p>Uncorrectable ECC Error found in %s cluster on following node(s):</p><table border=\"1\">", clusterName)
	for _, name := range nodeNames {
		fmt.Fprintf(&body, "<tr><td>%s</td></tr>", name)
	}
	fmt.Fprintf(&body, "</table><p>The node(s) will require reboot in order to repair. The following job is impacted:</p> <a href=\"%s\">%s</a><p>Please save and end your job ASAP. ", jobLink, jobID)
	if rebootEnabled {
		fmt.Fprintf(&body, "Node(s) will be rebooted in %d days and all progress will be lost.</p>", daysUntilReboot)
	} else {
		body.WriteString("Node(s) will be rebooted soon for repair and all progress will be lost</p>")
	}

	return ECCAlertEmail{
		Subject: fmt.Sprintf("Repair Manager Alert [ECC ERROR] [%s]", jobID),
		To:      jobOwnerEmail,
		Body:    body.String(),
	}
}

// SMTPNotifier delivers Messages over SMTP, matching the source's
// EmailHandler.
type SMTPNotifier struct {
	smtpAddr string
	sender   string
	username string
	password string
}

func NewSMTPNotifier(smtpAddr, sender, username, password string) *SMTPNotifier {
	return &SMTPNotifier{smtpAddr: smtpAddr, sender: sender, username: username, password: password}
}

// Deliver sends msg as the to-address, matching EmailHandler.send's
// optional auth (plain SMTP when no credentials are configured).
func (n *SMTPNotifier) Deliver(msg Message) error {
	to := msg.UserName
	body := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", n.sender, to, "Job state change", msg.Body))

	var auth smtp.Auth
	if n.username != "" && n.password != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.smtpAddr)
	}
	if err := smtp.SendMail(n.smtpAddr, auth, n.sender, []string{to}, body); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}
