package reminder

import "fmt"

// ReminderMessage renders the day-before reminder sent to the patient.
func ReminderMessage(patientName, startTime string) string {
	return fmt.Sprintf(
		"Olá %s, lembrete da sua consulta amanhã às %s. Caso precise remarcar, entre em contato com a clínica.",
		patientName, startTime)
}

// FollowupMessage renders the day-after follow-up sent to the patient.
func FollowupMessage(patientName string) string {
	return fmt.Sprintf(
		"Olá %s, esperamos que sua consulta de ontem tenha corrido bem. Qualquer dúvida, estamos à disposição.",
		patientName)
}
